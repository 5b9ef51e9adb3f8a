package notify

import (
	"context"
	"os/exec"
	"time"
)

// Desktop shows a transient desktop notification through notify-send.
func Desktop(summary, body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return exec.CommandContext(ctx, "notify-send", "-a", "rivoo", "-t", "3000", summary, body).Run()
}
