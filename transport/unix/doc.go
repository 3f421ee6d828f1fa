// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package unix specializes the stream transport for Unix-domain sockets.
// Destinations are filesystem paths, so connectors skip name resolution.
package unix
