package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bloom-client/internal/backend"
	"bloom-client/internal/config"
	"bloom-client/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Los logs van a stderr para no mezclarse con la respuesta.
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil && lvl > zapcore.WarnLevel {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	client := backend.NewHTTPClient(cfg.BaseURL, cfg.BackendHeaderTimeout, logger)
	controller := service.NewConversationController(logger, client, service.NewStreamReducer(), cfg.UserID, cfg.ReportsClearTimeout)

	r := newRenderer(os.Stdout)
	unsubscribe := controller.Subscribe(r.render)
	defer unsubscribe()

	// Ctrl-C corta el turno en curso conservando lo ya recibido.
	go func() {
		<-ctx.Done()
		controller.Cancel()
	}()

	fmt.Println("===== Bloom =====")
	fmt.Println("Comandos: /new, /widgets, /select N, salir")

	for {
		fmt.Print("\nTú: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.EqualFold(line, "salir"), strings.EqualFold(line, "exit"):
			controller.Cancel()
			controller.Wait()
			return
		case line == "/new":
			controller.NewChat(ctx)
			continue
		case line == "/widgets":
			printWidgets(os.Stdout, controller.Snapshot().State)
			continue
		case strings.HasPrefix(line, "/select"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/select")))
			if err != nil {
				fmt.Println("Uso: /select N")
				continue
			}
			if err := controller.SelectWidget(n - 1); err != nil {
				fmt.Println("Widget inválido.")
				continue
			}
			printWidgets(os.Stdout, controller.Snapshot().State)
			continue
		}

		if err := controller.SendTurn(ctx, line, nil, nil); err != nil {
			if errors.Is(err, service.ErrTurnInProgress) {
				fmt.Println("Espera a que termine la respuesta actual.")
				continue
			}
			logger.Error("send turn", zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	controller.Cancel()
	controller.Wait()
}
