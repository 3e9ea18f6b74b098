// Package access models the permissions an API key holds in the remote
// library service.
//
// An Access value maps scopes (the personal library, a group, or all groups)
// to a permission bitmask. Values are immutable: a refresh produces a new
// Access that replaces the old one wholesale. ParsePermissions decodes the
// service's key descriptor, and WriteToStore/FromStore persist the mapping
// through the Store interface.
package access
