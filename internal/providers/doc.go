// Package providers links third-party smart home clouds and imports their
// devices. Provider-specific clients live in the alexa and tuya
// subpackages; the Linker runs the connection flow shown to the user.
package providers
