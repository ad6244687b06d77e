// Package config assembles server settings from an optional YAML file,
// environment variables and command-line flags, in increasing priority.
// The YAML file also carries the reference data seeded at startup.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/model"
)

type Config struct {
	Addr string `yaml:"addr"`
	DB   string `yaml:"db"`

	S3   S3Config   `yaml:"s3"`
	STB  STBConfig  `yaml:"stb_tester"`
	Jobs JobsConfig `yaml:"jobs"`

	Reference Reference `yaml:"reference"`
}

type S3Config struct {
	Endpoint     string        `yaml:"endpoint"`
	Region       string        `yaml:"region"`
	Bucket       string        `yaml:"bucket"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type STBConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type JobsConfig struct {
	Workers int `yaml:"workers"`
	Buffer  int `yaml:"buffer"`
}

// Reference is the static data the portal is seeded with.
type Reference struct {
	Users         []model.User        `yaml:"users"`
	Languages     []string            `yaml:"languages"`
	Manufacturers []string            `yaml:"manufacturers"`
	NatCos        []model.NatCo       `yaml:"natcos"`
	StatusGroups  []model.StatusGroup `yaml:"status_groups"`
}

// Seed converts r to the database seed.
func (r Reference) Seed() db.ReferenceData {
	return db.ReferenceData{
		Users:         r.Users,
		Languages:     r.Languages,
		Manufacturers: r.Manufacturers,
		NatCos:        r.NatCos,
		StatusGroups:  r.StatusGroups,
	}
}

func Default() Config {
	return Config{
		Addr: ":8080",
		DB:   "analytiqa.db",
		S3: S3Config{
			Region:       "us-east-1",
			PollInterval: 30 * time.Second,
		},
		STB: STBConfig{
			URL:          "https://innowave.stb-tester.com",
			PollInterval: 5 * time.Minute,
		},
		Jobs: JobsConfig{Workers: 2, Buffer: 16},
	}
}

// Decode overlays YAML data on c. Unknown keys are an error.
func (c *Config) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays the environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Addr, "ANALYTIQA_ADDR")
	set(&c.DB, "ANALYTIQA_DB")
	set(&c.S3.Endpoint, "S3_ENDPOINT")
	set(&c.S3.Region, "S3_REGION")
	set(&c.S3.Bucket, "S3_BUCKET")
	set(&c.S3.AccessKey, "AWS_ACCESS_KEY_ID")
	set(&c.S3.SecretKey, "AWS_SECRET_ACCESS_KEY")
	set(&c.STB.URL, "STB_TESTER_URL")
	set(&c.STB.Token, "STB_TESTER_TOKEN")
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DB == "" {
		errs = append(errs, errors.New("db is required"))
	}
	if c.S3.Bucket != "" && c.S3.PollInterval <= 0 {
		errs = append(errs, errors.New("s3.poll_interval must be positive"))
	}
	if c.STB.Token != "" && c.STB.PollInterval <= 0 {
		errs = append(errs, errors.New("stb_tester.poll_interval must be positive"))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, errors.New("jobs.workers must be at least 1"))
	}
	for _, g := range c.Reference.StatusGroups {
		for _, st := range g.Statuses {
			if !st.Valid() {
				errs = append(errs, fmt.Errorf("status group %q: unknown status %q", g.Name, st))
			}
		}
	}
	return errors.Join(errs...)
}

// Parse builds a Config from args and the environment. The YAML file
// named by -config (or ANALYTIQA_CONFIG) is applied over the defaults,
// then the environment, then any flag given explicitly.
func Parse(args []string, getenv func(string) string) (Config, error) {
	fs := flag.NewFlagSet("analytiqa", flag.ContinueOnError)
	path := fs.String("config", getenv("ANALYTIQA_CONFIG"), "YAML config file")

	var f Config
	d := Default()
	fs.StringVar(&f.Addr, "addr", d.Addr, "listen address")
	fs.StringVar(&f.DB, "db", d.DB, "SQLite database path")
	fs.StringVar(&f.S3.Endpoint, "s3-endpoint", "", "S3 endpoint URL (e.g. http://localhost:3900)")
	fs.StringVar(&f.S3.Region, "s3-region", d.S3.Region, "S3 region")
	fs.StringVar(&f.S3.Bucket, "s3-bucket", "", "S3 bucket holding the worksheet inbox")
	fs.DurationVar(&f.S3.PollInterval, "s3-poll-interval", d.S3.PollInterval, "S3 inbox poll interval")
	fs.StringVar(&f.STB.URL, "stb-url", d.STB.URL, "stb-tester portal URL")
	fs.StringVar(&f.STB.Token, "stb-token", "", "stb-tester API token")
	fs.DurationVar(&f.STB.PollInterval, "stb-poll-interval", d.STB.PollInterval, "stb-tester sync poll interval")
	fs.IntVar(&f.Jobs.Workers, "import-workers", d.Jobs.Workers, "concurrent import jobs")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Decode(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", *path, err)
		}
	}
	cfg.ApplyEnv(getenv)

	overrides := map[string]func(){
		"addr":              func() { cfg.Addr = f.Addr },
		"db":                func() { cfg.DB = f.DB },
		"s3-endpoint":       func() { cfg.S3.Endpoint = f.S3.Endpoint },
		"s3-region":         func() { cfg.S3.Region = f.S3.Region },
		"s3-bucket":         func() { cfg.S3.Bucket = f.S3.Bucket },
		"s3-poll-interval":  func() { cfg.S3.PollInterval = f.S3.PollInterval },
		"stb-url":           func() { cfg.STB.URL = f.STB.URL },
		"stb-token":         func() { cfg.STB.Token = f.STB.Token },
		"stb-poll-interval": func() { cfg.STB.PollInterval = f.STB.PollInterval },
		"import-workers":    func() { cfg.Jobs.Workers = f.Jobs.Workers },
	}
	fs.Visit(func(fl *flag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
