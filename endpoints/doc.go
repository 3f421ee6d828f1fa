// Package endpoints turns textual endpoint descriptions into listeners and
// connections.
//
// Server descriptions:
//
//	tcp:28001
//	tcp:port=28001:interface=127.0.0.1
//	unix:/run/app.sock:mode=660
//
// Client descriptions:
//
//	tcp:host=example.com:port=80:timeout=5:bindAddress=10.0.0.2
//	unix:path=/run/app.sock:timeout=2
//
// Arguments are separated by colons; a backslash escapes the next
// character, so an IPv6 interface is written interface=\:\:1.
package endpoints
