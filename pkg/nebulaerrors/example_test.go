package nebulaerrors_test

import (
	"errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// Example demonstrates basic error creation and detail attachment.
func Example() {
	err := nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "destination field mapped twice")

	err = err.WithDetail("destination_field", "email").
		WithDetail("pipeline_id", "p-1")

	fmt.Println(err.Error())

	// Output:
	// validation: destination field mapped twice
}

// ExampleWrap shows how connector failures keep their cause.
func ExampleWrap() {
	err := nebulaerrors.ConnectorError("csv", "read", io.ErrUnexpectedEOF)

	if nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnector) {
		fmt.Println("This is a connector error")
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a connector error
	// Original error was unexpected EOF
}

// ExampleFlatten shows the summary stored on a failed run log.
func ExampleFlatten() {
	cause := fmt.Errorf("insert batch: %w", errors.New("connection refused"))
	err := nebulaerrors.ExecutionError(nebulaerrors.StageDestinationWrite,
		nebulaerrors.ConnectorError("postgresql", "write", cause))

	stage, _ := nebulaerrors.StageOf(err)
	fmt.Println(stage)
	fmt.Println(nebulaerrors.Flatten(err))

	// Output:
	// DestinationWrite
	// DestinationWrite stage failed --> postgresql write failed --> insert batch --> connection refused
}
