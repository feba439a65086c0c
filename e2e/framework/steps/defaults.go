package steps

// RegisterDefaults registers all built-in handlers.
func RegisterDefaults(reg *Registry) {
	RegisterNavigationHandlers(reg)
	RegisterInputHandlers(reg)
	RegisterCaptureHandlers(reg)
	RegisterAssertionHandlers(reg)
	RegisterMiscHandlers(reg)
}
