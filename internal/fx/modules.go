package fx

import (
	"chesswatch/internal/adapter"
	"chesswatch/internal/api"
	"chesswatch/internal/config"
	"chesswatch/internal/database"
	"chesswatch/internal/logger"
	"chesswatch/internal/repository"
	"chesswatch/internal/scorer"
	"chesswatch/internal/server"
	"chesswatch/internal/service"

	"go.uber.org/fx"
)

func ProvideStrategy() scorer.Strategy {
	return scorer.NewHeuristic()
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewGameRepository),
	fx.Provide(repository.NewCursorRepository),
	// platform clients + adapters
	fx.Provide(api.NewChessComClient),
	fx.Provide(api.NewLichessClient),
	fx.Provide(adapter.NewChessCom),
	fx.Provide(adapter.NewLichess),
	// scoring
	fx.Provide(ProvideStrategy),
	// svc
	fx.Provide(service.NewImporter),
	fx.Provide(service.NewJobRegistry),
	// server
	fx.Provide(server.NewImportServer),
)
