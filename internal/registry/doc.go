// Package registry provides the central "glue" for native context modules.
//
// A script whose context attribute names something other than the HCL
// declaration language selects a registered native module (Go code that
// produces exports) or a declaration library (an .hcl file loaded at startup
// whose declarations are merged with the script's own).
//
// During application startup the registry is populated and then validated so
// that every native module's input struct can be decoded from HCL.
package registry
