package wire

// Operation identifies what a request does to the addressed capability.
type Operation uint8

const (
	// OpReadProperty reads the current value of a property.
	OpReadProperty Operation = 1

	// OpWriteProperty replaces the value of a property.
	OpWriteProperty Operation = 2

	// OpInvokeAction executes an action with a parameter payload.
	OpInvokeAction Operation = 3

	// OpSubscribeEvent registers the connection for event pushes.
	OpSubscribeEvent Operation = 4

	// OpUnsubscribeEvent cancels a subscription. Idempotent.
	OpUnsubscribeEvent Operation = 5

	// OpReadAllProperties reads every readable property of a Thing.
	// The request's capability field is empty.
	OpReadAllProperties Operation = 6
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpReadProperty:
		return "readProperty"
	case OpWriteProperty:
		return "writeProperty"
	case OpInvokeAction:
		return "invokeAction"
	case OpSubscribeEvent:
		return "subscribeEvent"
	case OpUnsubscribeEvent:
		return "unsubscribeEvent"
	case OpReadAllProperties:
		return "readAllProperties"
	default:
		return "unknown"
	}
}

// IsValid returns true if the operation is a known protocol operation.
func (o Operation) IsValid() bool {
	return o >= OpReadProperty && o <= OpReadAllProperties
}

// IsWrite reports whether the operation mutates the Thing and therefore
// runs on the Thing's serialized write path.
func (o Operation) IsWrite() bool {
	return o == OpWriteProperty || o == OpInvokeAction
}
