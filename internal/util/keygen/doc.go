// Package keygen generates SSH key pairs for fleet access.
//
// Keys are produced in OpenSSH private key format and authorized_keys
// format, suitable for uploading to Hetzner Cloud and for use by the ssh
// binary that distcc spawns.
package keygen
