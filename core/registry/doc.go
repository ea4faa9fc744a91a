// Package registry keeps the configured providers of an application by name
// and tracks which one is active.
//
// Providers are added with [Registry.Register], or built from configuration
// with [FromConfig], [FromEnv] and [LoadFile]. The first provider registered
// becomes the active one until [Registry.SetActive] picks another. All
// methods are safe for concurrent use.
package registry
