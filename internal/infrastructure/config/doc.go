// Package config handles loading and validating provisioner configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields per command
//   - Default value handling
//
// Security Considerations:
//   - Provisioning key/secret and broker passwords should be set via
//     environment variables (GLPROVISION_PROVISION_KEY, ...)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/provision.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ValidateProvisioning(); err != nil {
//	    log.Fatal(err)
//	}
package config
