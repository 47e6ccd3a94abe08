package config

// Config is the top-level YAML structure.
type Config struct {
	Version string      `yaml:"version"`
	Server  ServerConf  `yaml:"server"`
	Session SessionConf `yaml:"session"`
	Merge   MergeConf   `yaml:"merge"`
	Kinds   []KindDef   `yaml:"kinds"` // empty = built-in kind set
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr string `yaml:"addr"`
}

// SessionConf holds tunable settings of the session that owns the graph.
type SessionConf struct {
	DecodeWorkers   int `yaml:"decode_workers"`
	QueueDepth      int `yaml:"queue_depth"`
	ImportTimeoutMs int `yaml:"import_timeout_ms"`
}

// MergeConf controls how incoming documents are admitted.
type MergeConf struct {
	StrictKinds bool `yaml:"strict_kinds"` // reject nodes whose type tag is not in Kinds
}

// KindDef declares one node type tag.
type KindDef struct {
	Tag          string    `yaml:"tag"`
	Capabilities []string  `yaml:"capabilities"`
	Roles        []RoleDef `yaml:"roles"`
}

// RoleDef constrains one reference role of a kind.
type RoleDef struct {
	Name   string `yaml:"name"`
	Max    int    `yaml:"max"` // 0 = unbounded
	Unique bool   `yaml:"unique"`
}
