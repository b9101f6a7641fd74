package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type WebIngress struct {
	Port int `yaml:"port"`
}

type IngressSettings struct {
	Web WebIngress `yaml:"web"`
}

type GameSettings struct {
	// Ticks of the pre-game countdown, one per second.
	CountdownSeconds int `yaml:"countdownSeconds"`
	// Players are force-finished this long after the round starts.
	RoundSeconds int `yaml:"roundSeconds"`
	// Delay between the round summary and the new-round broadcast.
	GraceSeconds   int `yaml:"graceSeconds"`
	StartingBudget int `yaml:"startingBudget"`
}

type ChatSettings struct {
	MessagesPerSecond float64 `yaml:"messagesPerSecond"`
	Burst             int     `yaml:"burst"`
}

type Settings struct {
	Ingress IngressSettings `yaml:"ingress"`
	Game    GameSettings    `yaml:"game"`
	Chat    ChatSettings    `yaml:"chat"`
}

func Default() Settings {
	return Settings{
		Ingress: IngressSettings{
			Web: WebIngress{Port: 29999},
		},
		Game: GameSettings{
			CountdownSeconds: 5,
			RoundSeconds:     300,
			GraceSeconds:     5,
			StartingBudget:   1000,
		},
		Chat: ChatSettings{
			MessagesPerSecond: 2,
			Burst:             8,
		},
	}
}

// Process reads the provided configuration files in order, each one layered
// over the previous, starting from the defaults. If no files are provided
// the default configuration is used.
func Process(configPaths []string) (*Settings, error) {
	settings := Default()

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config file %s: %v", path, err)
		}

		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("could not merge config file %s: %v", path, err)
		}
	}

	if settings.Ingress.Web.Port <= 0 {
		return nil, fmt.Errorf("invalid ingress port %d", settings.Ingress.Web.Port)
	}
	if settings.Game.RoundSeconds <= 0 {
		return nil, fmt.Errorf("round duration must be positive")
	}

	return &settings, nil
}
