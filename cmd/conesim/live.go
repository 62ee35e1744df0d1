package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/conesim/internal/config"
	"github.com/san-kum/conesim/internal/server"
	"github.com/san-kum/conesim/internal/sim"
	"github.com/san-kum/conesim/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSession(cfg *config.Config) (*sim.Session, error) {
	in, err := cfg.NewIntegrator()
	if err != nil {
		return nil, err
	}
	s := sim.NewSession(in)
	s.SetGuard(cfg.Watchdog)
	return s, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m := viz.NewModel(s, cfg.Watchdog, frameRate)
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if configFile == "" {
			return fmt.Errorf("--watch needs --config")
		}
		ch, err := viz.WatchConfig(ctx, configFile, newLogger())
		if err != nil {
			return err
		}
		m = m.WithReload(ch)
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	sc := server.DefaultConfig()
	sc.Bind, _ = cmd.Flags().GetString("bind")
	sc.Port, _ = cmd.Flags().GetInt("port")
	sc.FrameRate = frameRate
	sc.Logger = newServiceLogger()

	ctx, cancel := signalContext()
	defer cancel()

	srv := server.New(sc, s, cfg.Watchdog)
	defer sc.Logger.Sync()
	sc.Logger.Info("serving", zap.String("url", "http://"+srv.Addr()+"/api"))
	return srv.Start(ctx)
}
