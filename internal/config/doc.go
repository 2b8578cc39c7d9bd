// Package config resolves runtime settings from several sources with precedence:
// explicit settings (JSON argument) > environment variables > config files >
// defaults. Config files are read from the config directory in the order
// default.yaml, <NODE_ENV>.yaml, local.yaml, followed by an optional file named
// on the command line. A .env file is imported into the environment first
// unless IMPORT_ENV is false.
package config
