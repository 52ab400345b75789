package main

// Alerter sink blank imports — each import activates a self-registering
// notifier adapter. Add new sinks here as they are implemented.
import (
	_ "github.com/komodo-run/core/internal/adapter/customwebhook"
	_ "github.com/komodo-run/core/internal/adapter/discord"
	_ "github.com/komodo-run/core/internal/adapter/slack"
)
