package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turbolytics/activerecord/pkg/record"
)

type Logger struct {
	Level string `yaml:"level"`
}

type Database struct {
	// Driver is one of sqlite, mysql, postgres, pgx, pgxpool, mongodb or
	// memory.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Database names the MongoDB database. SQL drivers take it from the DSN.
	Database string `yaml:"database"`
}

type Field struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

type Table struct {
	Name       string  `yaml:"name"`
	PrimaryKey string  `yaml:"primary_key"`
	Fields     []Field `yaml:"fields"`
}

// S3 selects an S3 bucket as the export target.
type S3 struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Export struct {
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
	S3        *S3    `yaml:"s3"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Changes struct {
	// Stdout writes change events as JSON lines.
	Stdout bool `yaml:"stdout"`
	// Kafka is a kafka://brokers/topic URI change events are produced to.
	Kafka string `yaml:"kafka"`
}

type Config struct {
	Logger   Logger   `yaml:"logger"`
	Database Database `yaml:"database"`
	Tables   []Table  `yaml:"tables"`
	Export   Export   `yaml:"export"`
	Server   Server   `yaml:"server"`
	Changes  Changes  `yaml:"changes"`
}

const (
	defaultBatchSize = 1000
	defaultAddr      = ":8080"
)

func NewFromFile(fpath string) (*Config, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

func Parse(bs []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(bs, &c); err != nil {
		return nil, err
	}
	if c.Export.BatchSize <= 0 {
		c.Export.BatchSize = defaultBatchSize
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Database.Driver == "" {
		return nil, fmt.Errorf("config: database.driver is required")
	}
	return &c, nil
}

// Schema builds and validates the record schema of t.
func (t Table) Schema() (*record.Schema, error) {
	pk := t.PrimaryKey
	if pk == "" {
		pk = "id"
	}
	fields := make([]record.Field, len(t.Fields))
	for i, f := range t.Fields {
		ft, err := record.ParseFieldType(f.Type)
		if err != nil {
			return nil, &record.SchemaError{Table: t.Name, Field: f.Name, Reason: "bad type", Err: err}
		}
		fields[i] = record.Field{Name: f.Name, Type: ft, Nullable: f.Nullable}
	}
	return record.NewSchema(t.Name, pk, fields...)
}

// Registry validates every table and registers its schema.
func (c *Config) Registry() (*record.Registry, error) {
	reg := record.NewRegistry()
	for _, t := range c.Tables {
		s, err := t.Schema()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
