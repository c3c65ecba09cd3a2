package registry

// Reference is a consumer bundle's borrowable handle to a registration
// (spec.md §3 "Service Reference"). A Reference keeps its registration alive
// through the registration's own usage accounting; it carries no locks of
// its own and is safe to share by value semantics (copy the pointer).
type Reference struct {
	registry         *Registry
	registration     *Registration
	consumerBundleID int64
}

func newReference(r *Registry, reg *Registration, consumerBundleID int64) *Reference {
	return &Reference{registry: r, registration: reg, consumerBundleID: consumerBundleID}
}

// ServiceID returns the referenced registration's service id.
func (ref *Reference) ServiceID() int64 { return ref.registration.id }

// ConsumerBundleID returns the bundle this reference was issued to.
func (ref *Reference) ConsumerBundleID() int64 { return ref.consumerBundleID }

// Properties returns a snapshot of the referenced registration's current
// properties.
func (ref *Reference) Properties() map[string]any { return ref.registration.Properties() }

// Registration returns the underlying registration. Framework-internal
// callers (trackers, the bundle context) use this to call GetService/
// UngetService/ModifyProperties through the owning Registry.
func (ref *Reference) Registration() *Registration { return ref.registration }

// IsUnregistering reports whether the referenced registration has begun
// unregistering. Per spec.md §4.5, GetService fails once this is true.
func (ref *Reference) IsUnregistering() bool { return ref.registration.IsUnregistering() }
