// Package common holds process-wide values shared by the binaries.
package common

// PackageName namespaces metrics and is reported in logs.
const PackageName = "certificate_registry"

// Version is set at build time with -ldflags "-X github.com/ruteri/certificate-registry/common.Version=..."
var Version = "dev"
