// cmd/server/main.go
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zapvia/wadispatch-backend/internal/config"
	"github.com/zapvia/wadispatch-backend/internal/db"
	"github.com/zapvia/wadispatch-backend/internal/dispatch"
	"github.com/zapvia/wadispatch-backend/internal/events"
	"github.com/zapvia/wadispatch-backend/internal/handler"
	"github.com/zapvia/wadispatch-backend/internal/repository"
	"github.com/zapvia/wadispatch-backend/internal/schedule"
	"github.com/zapvia/wadispatch-backend/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	conn, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	itemRepo := &repository.DispatchItemRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}

	publisher := events.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	defer publisher.Close()

	gate := dispatch.NewConnectionGate()
	sender := service.NewMockSender()

	dispatcher := dispatch.NewDispatcher(
		itemRepo, campaignRepo, contactRepo, templateRepo,
		gate, sender, service.RenderTemplate, publisher, cfg.SendTimeout,
	)
	defer dispatcher.Shutdown()

	campaignService := service.NewCampaignService(
		campaignRepo, itemRepo, contactRepo, templateRepo,
		dispatcher, schedule.NewPlanner(nil), publisher, cfg.Timezone,
	)

	// Respawn workers for campaigns that were mid-flight when the process
	// last stopped.
	if err := campaignService.Recover(); err != nil {
		log.Fatal().Err(err).Msg("failed to recover running campaigns")
	}

	campaignHandler := handler.NewCampaignHandler(campaignService)

	r := chi.NewRouter()
	campaignHandler.Routes(r)

	log.Info().Str("port", cfg.HTTPPort).Msg("server running")
	log.Fatal().Err(http.ListenAndServe(":"+cfg.HTTPPort, r)).Msg("server stopped")
}
