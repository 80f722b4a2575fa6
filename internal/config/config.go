package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "TIMEBOK_"

type Application struct {
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Database Database `koanf:"db"`
	Auth     Auth     `koanf:"auth"`
	Calendar Calendar `koanf:"calendar"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Auth struct {
	JwtSecret  string        `koanf:"jwtsecret"`
	SessionTTL time.Duration `koanf:"sessionttl"`
	CookieName string        `koanf:"cookiename"`
	// LoginRateLimit is the number of login attempts per second allowed for a single client IP.
	LoginRateLimit float64 `koanf:"loginratelimit"`
	LoginBurst     int     `koanf:"loginburst"`
	// BootstrapUsername and BootstrapPassword describe the practitioner created at startup
	// when no practitioner with that username exists yet. Both empty disables bootstrapping.
	BootstrapUsername string `koanf:"bootstrapusername"`
	BootstrapPassword string `koanf:"bootstrappassword"`
}

type Calendar struct {
	Timezone           string `koanf:"timezone"`
	StartHour          int    `koanf:"starthour"`
	EndHour            int    `koanf:"endhour"`
	MinDurationMinutes int    `koanf:"mindurationminutes"`
	SlotMinutes        int    `koanf:"slotminutes"`
}

// Location resolves the configured timezone. Validate guarantees it is loadable.
func (c Calendar) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Calendar) MinDuration() time.Duration {
	return time.Duration(c.MinDurationMinutes) * time.Minute
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:3000",
		Port: 3000,
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "timebok",
			Pass:   "",
			Name:   "timebok",
			Schema: "timebok",
		},
		Auth: Auth{
			SessionTTL:     12 * time.Hour,
			CookieName:     "timebok_session",
			LoginRateLimit: 1,
			LoginBurst:     5,
		},
		Calendar: Calendar{
			Timezone:           "Europe/Oslo",
			StartHour:          7,
			EndHour:            17,
			MinDurationMinutes: 15,
			SlotMinutes:        15,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	if err := app.Validate(); err != nil {
		return Application{}, err
	}
	return app, nil
}

func (a Application) Validate() error {
	var errs []error
	if a.Auth.JwtSecret == "" {
		errs = append(errs, errors.New("auth.jwtsecret must be set"))
	}
	if a.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.sessionttl must be positive"))
	}
	if (a.Auth.BootstrapUsername == "") != (a.Auth.BootstrapPassword == "") {
		errs = append(errs, errors.New("auth.bootstrapusername and auth.bootstrappassword must be set together"))
	}
	c := a.Calendar
	if c.StartHour < 0 || c.EndHour > 24 || c.StartHour >= c.EndHour {
		errs = append(errs, fmt.Errorf("calendar window %d-%d is invalid", c.StartHour, c.EndHour))
	}
	if c.MinDurationMinutes < 0 {
		errs = append(errs, errors.New("calendar.mindurationminutes must not be negative"))
	}
	if c.SlotMinutes <= 0 || 60%c.SlotMinutes != 0 {
		errs = append(errs, fmt.Errorf("calendar.slotminutes %d must divide an hour", c.SlotMinutes))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calendar.timezone: %w", err))
	}
	return errors.Join(errs...)
}
