package protocol

// Capabilities decides which methods a role may send and serve. Each
// assertion returns nil or a *CapabilityError.
type Capabilities interface {
	// AssertCapabilityForMethod checks that the peer declared support for an
	// outbound request method.
	AssertCapabilityForMethod(method string) error
	// AssertNotificationCapability checks that this side may emit an
	// outbound notification.
	AssertNotificationCapability(method string) error
	// AssertRequestHandlerCapability checks that this side declared the
	// capability needed to serve an inbound request method.
	AssertRequestHandlerCapability(method string) error
}

// AllowAll is a Capabilities that permits everything.
type AllowAll struct{}

func (AllowAll) AssertCapabilityForMethod(string) error      { return nil }
func (AllowAll) AssertNotificationCapability(string) error   { return nil }
func (AllowAll) AssertRequestHandlerCapability(string) error { return nil }
