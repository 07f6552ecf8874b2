// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

// Package config loads and serves GuildGate configuration. Options are
// addressed by dotted paths; the YAML file is validated against an
// embedded JSON Schema before it is accepted.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Option paths. Components read configuration through these constants so
// the full surface stays greppable in one place.
const (
	KeyLogFormat         = "log.format"
	KeyInviteLink        = "invite-link"
	KeyStorageBackend    = "storage.backend"
	KeyStorageFilePath   = "storage.file.path"
	KeyStoragePostgres   = "storage.postgres.dsn"
	KeyCodeTTL           = "linking.code-ttl"
	KeyLinkedRoleName    = "linking.linked-role-name"
	KeyLinkCommands      = "linking.linked-commands"
	KeyUnlinkCommands    = "linking.unlinked-commands"
	KeyNicknameSync      = "linking.nickname-sync"
	KeyEnabled           = "require-link.enabled"
	KeyListenerPriority  = "require-link.listener-priority"
	KeyBypassNames       = "require-link.bypass-names"
	KeyMustBeInGuild     = "require-link.must-be-in-guild"
	KeySubRoleRequired   = "require-link.subscriber-role.required"
	KeySubRoles          = "require-link.subscriber-role.roles"
	KeySubRolesAll       = "require-link.subscriber-role.require-all"
	KeyMsgStarting       = "require-link.messages.starting"
	KeyMsgNotLinked      = "require-link.messages.not-linked"
	KeyMsgNotInGuild     = "require-link.messages.not-in-guild"
	KeyMsgRoleRequired   = "require-link.messages.role-required"
	KeyMsgRoleMisconfig  = "require-link.messages.role-misconfigured"
	KeyMsgUnlinkedKick   = "require-link.messages.unlinked-kick"
	KeyMsgCheckFailed    = "require-link.messages.check-failed"
	KeyObservabilityAddr = "observability.addr"
)

// DefaultCodeTTL bounds the lifetime of outstanding pairing codes when
// linking.code-ttl is not configured.
const DefaultCodeTTL = 15 * time.Minute

// Config provides typed access to loaded configuration.
type Config struct {
	k *koanf.Koanf
}

// Load reads the YAML config file, validates it against the embedded
// schema, and overlays any supplied command-line flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := ValidateFile(path); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("path", path).
			Wrap(err)
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}
	return &Config{k: k}, nil
}

// New wraps an already-populated koanf instance. Used by tests.
func New(k *koanf.Koanf) *Config {
	return &Config{k: k}
}

// Bool returns the boolean at path (false if absent).
func (c *Config) Bool(path string) bool {
	return c.k.Bool(path)
}

// String returns the string at path ("" if absent).
func (c *Config) String(path string) string {
	return c.k.String(path)
}

// Strings returns the string list at path (nil if absent). Scalar
// entries of other YAML types are stringified.
func (c *Config) Strings(path string) []string {
	return c.k.Strings(path)
}

// Duration returns the duration at path, or def if absent.
func (c *Config) Duration(path string, def time.Duration) time.Duration {
	if !c.k.Exists(path) {
		return def
	}
	return c.k.Duration(path)
}

// Exists reports whether the option is present.
func (c *Config) Exists(path string) bool {
	return c.k.Exists(path)
}

// GuildRequirement interprets require-link.must-be-in-guild, which may be
// a boolean (presence in the primary guild) or one or more guild IDs
// (presence in every listed guild).
//
// Returns (required, guildIDs): guildIDs is nil for the boolean form.
func (c *Config) GuildRequirement() (bool, []string) {
	v := c.k.Get(KeyMustBeInGuild)
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case []any:
		ids := make([]string, 0, len(val))
		for _, entry := range val {
			ids = append(ids, fmt.Sprint(entry))
		}
		return true, ids
	case []string:
		return true, val
	default:
		// Scalar guild ID. YAML may have parsed it as an integer.
		return true, []string{fmt.Sprint(val)}
	}
}
