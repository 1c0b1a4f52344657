// Package config handles loading and validating Gray Logic Groups configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Static group definitions (the groups: section)
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - JWT secrets must be changed from defaults before production use
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - Re-read on demand by the group reload operation
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.ID)
package config
