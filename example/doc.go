/*
Package main contains a command-line example for d3xx.

The example shows how to:
  - enumerate connected FT60x devices
  - configure a media connection from command-line flags
  - register media callbacks (trace, state, error, receive)
  - send a message
  - read a synchronous reply using EOP-based receive parameters
*/
package main
