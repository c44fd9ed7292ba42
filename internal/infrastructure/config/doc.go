// Package config handles loading and validating contacthub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (the signing secret, Redis password) should be set
//     via environment variables rather than committed to the config file
//   - The config file should have restricted permissions (0600)
//   - The signing secret must be changed from any sample value before
//     production use; tokens are only as strong as the secret
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
