// Package examples contains reference Thing implementations.
//
// The Spectrometer simulates a fiber optic spectrometer: a connection
// state machine (DISCONNECTED, CONNECTED, MEASURING, FAULT), a bounded
// integration_time setting, and an intensity_measurement event emitted
// from a background acquisition goroutine once per integration window.
//
//	spec, _ := examples.NewSpectrometer(examples.SpectrometerConfig{
//		ID:           "spectrometer-1",
//		SerialNumber: "USB2+H15897",
//	})
//	dispatcher.Attach(spec.Thing())
//	spec.Bind(dispatcher.Publisher())
package examples
