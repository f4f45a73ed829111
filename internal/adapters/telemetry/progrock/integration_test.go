package progrock_test

import (
	"context"
	"testing"

	"go.trai.ch/kiln/internal/adapters/telemetry/progrock"
)

func TestRecorder_Integration(t *testing.T) {
	// 1. Initialize the Recorder
	recorder := progrock.New()

	// 2. Start a stage
	ctx := context.Background()
	_, vertex := recorder.Record(ctx, "libjpeg-turbo/1.5.2 building [os=Linux]")

	// 3. Write to Stdout and Stderr
	if _, err := vertex.Stdout().Write([]byte("make -j4\n")); err != nil {
		t.Errorf("failed to write to stdout: %v", err)
	}
	if _, err := vertex.Stderr().Write([]byte("warning: unused variable\n")); err != nil {
		t.Errorf("failed to write to stderr: %v", err)
	}

	// 4. Log a message
	vertex.Log("applying patch install-name")

	// 5. Complete the vertex
	vertex.Complete(nil)

	// 6. A second, cached vertex
	_, cached := recorder.Record(ctx, "libjpeg-turbo/1.5.2 cached [os=Macos]")
	cached.Cached()
	cached.Complete(nil)

	// 7. Close the recorder
	if err := recorder.Close(); err != nil {
		t.Errorf("failed to close recorder: %v", err)
	}
}
