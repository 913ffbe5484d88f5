package main

import (
	"github.com/urfave/cli/v3"

	"github.com/justestif/spotify-now-playing/internal/auth"
)

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:           "spotify-now-playing",
		Usage:          "Show what is playing on Spotify",
		DefaultCommand: "serve",
		Commands:       r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, loginCommand, nowCommand, watchCommand, logoutCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP gateway and now-playing page",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: r.config.Addr,
			},
		},
		Action: r.Serve,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authorize with Spotify from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Loopback address for the OAuth callback",
				Value: auth.DefaultLoopbackAddr,
			},
		},
		Action: r.Login,
	}
}

func nowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Print the track currently playing",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Now,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll and redraw the track currently playing",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between polls",
				Value:   r.config.PollInterval,
			},
			&cli.BoolFlag{
				Name:  "stop-on-error",
				Usage: "Exit on the first failed poll",
			},
		},
		Action: r.Watch,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Delete the stored Spotify credentials",
		Action: r.Logout,
	}
}
