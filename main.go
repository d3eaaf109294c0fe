package main

import (
	api "mailvault-backend/cmd/api"
	maildomain "mailvault-backend/internal/mail/domain"
	mailrepo "mailvault-backend/internal/mail/repository"
	mailusecase "mailvault-backend/internal/mail/usecase"
	"mailvault-backend/pkg/blob"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/database"
	"mailvault-backend/pkg/embed"
	"mailvault-backend/pkg/imapx"
	"mailvault-backend/pkg/sanitize"
	"mailvault-backend/pkg/sse"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&maildomain.Account{},
		&maildomain.Folder{},
		&maildomain.Message{},
		&maildomain.MessageBody{},
		&maildomain.Attachment{},
		&maildomain.Embedding{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize repositories (dependency injection)
	accountRepo := mailrepo.NewAccountRepository(db)
	folderRepo := mailrepo.NewFolderRepository(db)
	messageRepo := mailrepo.NewMessageRepository(db)
	embeddingRepo := mailrepo.NewEmbeddingRepository(db)

	// Attachment blob store
	blobStore, err := blob.NewStore(cfg.BlobDir)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}

	// Embedding engine: tokenizer + ONNX runtime behind one serialized
	// handle shared by the worker and search
	tok, err := embed.NewHFTokenizer(cfg.EmbedTokenizerPath, cfg.EmbedPadToken)
	if err != nil {
		log.Fatalf("Failed to load tokenizer: %v", err)
	}
	runtime, err := embed.NewOnnxRuntime(cfg.EmbedOnnxLibPath, cfg.EmbedModelPath, cfg.EmbedDim, cfg.EmbedModelVersion)
	if err != nil {
		log.Fatalf("Failed to load embedding model: %v", err)
	}
	defer runtime.Close()
	engine := embed.NewEngine(tok, runtime, embed.DefaultTokenBudget)

	// Initialize SSE Manager
	sseManager := sse.NewManager()

	// Single serialized IMAP connection
	remote := imapx.NewManager()

	syncUsecase := mailusecase.NewSyncUsecase(
		accountRepo,
		folderRepo,
		messageRepo,
		embeddingRepo,
		remote,
		engine,
		sanitize.New(),
		blobStore,
		sseManager,
		cfg,
	)
	defer syncUsecase.Shutdown()

	// Initialize HTTP handler
	handler := api.NewHandler(syncUsecase, sseManager)

	log.Infof("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
