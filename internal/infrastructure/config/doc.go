// Package config handles loading and validating OmniHome Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with OMNIHOME_* environment variables
//   - Validation of required fields
//   - Watching the file so storage settings can change without a restart
//
// Secrets (JWT secret, Tuya access secret, Gemini API key, Firestore key)
// should be supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
