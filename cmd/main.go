package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/spotd/config"
	"github.com/xeptore/spotd/constant"
	"github.com/xeptore/spotd/ctxutil"
	"github.com/xeptore/spotd/errutil"
	"github.com/xeptore/spotd/log"
	"github.com/xeptore/spotd/sliceutil"
	"github.com/xeptore/spotd/spotify"
	"github.com/xeptore/spotd/spotify/auth"
	"github.com/xeptore/spotd/spotify/download"
	"github.com/xeptore/spotd/store"
)

const (
	flagConfigFilePath = "config"
	flagForceRefresh   = "force-refresh"
	flagLikedSongs     = "songs"

	loginAttempts = 3

	streamBaseURL = "https://audio-ap.spotifycdn.com/v1"
)

func main() {
	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     "spotd",
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Music catalog sync and downloader",
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     flagConfigFilePath,
				Aliases:  []string{"c"},
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "login",
				Usage:     "Establish and persist a session",
				Action:    runLogin,
				ArgsUsage: " ",
			},
			//nolint:exhaustruct
			{
				Name:      "download",
				Aliases:   []string{"d"},
				Usage:     "Download the entities the given share links point to",
				Action:    runDownload,
				ArgsUsage: "LINK [LINK...]",
			},
			//nolint:exhaustruct
			{
				Name:   "liked",
				Usage:  "Download the discography of every artist in your liked songs",
				Action: runLiked,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagForceRefresh,
						Usage: "Re-sweep liked artists even when a completed scan exists",
					},
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagLikedSongs,
						Usage: "Download the liked songs themselves instead of full artist discographies",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "playlists",
				Usage:     "List the playlists of the logged-in user",
				Action:    runPlaylists,
				ArgsUsage: " ",
			},
			//nolint:exhaustruct
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Search the catalog",
				Action:    runSearch,
				ArgsUsage: "QUERY",
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	cfgFilePath := cliCtx.String(flagConfigFilePath)
	cfgEnv := os.Getenv("CONFIG")
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath == "" && cfgEnv == "":
		return nil, errors.New("config file path and config environment variable are both empty. specify one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		cfg, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		return cfg, nil
	default:
		logger.Debug().Msg("Loading config from environment variable")
		cfg, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		return cfg, nil
	}
}

type app struct {
	logger     zerolog.Logger
	cfg        *config.Config
	db         *store.Store
	auth       *auth.Auth
	catalog    *spotify.Catalog
	downloader *download.Downloader

	qualityKbps int
}

func setup(ctx context.Context, cliCtx *cli.Context, logger zerolog.Logger) (*app, func(), error) {
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return nil, nil, err
	}

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o0755); nil != err {
			return nil, nil, fmt.Errorf("failed to create directory %q: %v", dir, err)
		}
	}

	db, err := store.Open(strings.TrimSuffix(cfg.DataDir, "/") + "/catalog.db")
	if nil != err {
		return nil, nil, err
	}

	sessionAuth := auth.New(auth.NewRemoteSession(), db)
	if err := login(ctx, logger, sessionAuth); nil != err {
		if closeErr := db.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close catalog database")
		}
		return nil, nil, err
	}

	tier := sessionAuth.Tier(cfg.ForcePremium)
	quality := tier.Quality()
	logger.Info().
		Str("tier", string(tier)).
		Int("bitrate_kbps", quality.BitrateKbps).
		Msg("Session established")

	client := spotify.NewClient(logger.With().Str("module", "client").Logger(), sessionAuth)
	catalog := spotify.NewCatalog(logger.With().Str("module", "catalog").Logger(), client, db, cfg, quality.BitrateKbps)
	source := download.NewHTTPSource(streamBaseURL, func() string { return sessionAuth.Tokens().Catalog })
	downloader := download.New(logger.With().Str("module", "download").Logger(), source, cfg.AntibanWait())

	a := &app{
		logger:      logger,
		cfg:         cfg,
		db:          db,
		auth:        sessionAuth,
		catalog:     catalog,
		downloader:  downloader,
		qualityKbps: quality.BitrateKbps,
	}
	cleanup := func() {
		if err := a.auth.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close session")
		}
		if err := a.db.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close catalog database")
		}
	}
	return a, cleanup, nil
}

// login retries transient session failures a few times before giving up.
// Bad credentials fail immediately.
func login(ctx context.Context, logger zerolog.Logger, sessionAuth *auth.Auth) error {
	username := os.Getenv("SPOTD_USERNAME")
	password := os.Getenv("SPOTD_PASSWORD")

	return try.Do(func(attempt int) (bool, error) {
		err := sessionAuth.Login(ctx, username, password)
		switch {
		case nil == err:
			return false, nil
		case errutil.IsContext(ctx):
			return false, ctx.Err()
		case errors.Is(err, auth.ErrBadCredentials):
			return false, fmt.Errorf("login rejected: check SPOTD_USERNAME and SPOTD_PASSWORD: %w", err)
		case errors.Is(err, auth.ErrUnauthorized):
			return false, errors.New("no stored session and no credentials provided. set SPOTD_USERNAME and SPOTD_PASSWORD")
		default:
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Login attempt failed")
			return attempt < loginAttempts, err
		}
	})
}

func runLogin(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	_, cleanup, err := setup(ctx, cliCtx, logger)
	if nil != err {
		return err
	}
	defer cleanup()

	logger.Info().Msg("Login succeeded. Session credentials are stored for future runs.")
	return nil
}

func runDownload(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	if cliCtx.NArg() == 0 {
		return errors.New("no links given")
	}

	links := make([]*spotify.Link, 0, cliCtx.NArg())
	for _, arg := range cliCtx.Args().Slice() {
		link, ok := spotify.ParseLink(arg)
		if !ok {
			return fmt.Errorf("unrecognized link: %q", arg)
		}
		links = append(links, link)
	}

	a, cleanup, err := setup(ctx, cliCtx, logger)
	if nil != err {
		return err
	}
	defer cleanup()

	syncer := newSyncer(ctx, a)
	defer syncer.close()

	// Links are isolated from each other. One failing batch item must not
	// take the rest down.
	var failures int
	for _, link := range links {
		if err := syncer.syncLink(ctx, link); nil != err {
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			failures++
			if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
				logger.Error().Func(log.Flaw(flawErr)).Str("kind", string(link.Kind)).Str("id", link.ID).Msg("Failed to sync link")
			} else {
				logger.Error().Err(err).Str("kind", string(link.Kind)).Str("id", link.ID).Msg("Failed to sync link")
			}
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d links failed", failures, len(links))
	}
	return nil
}

func runLiked(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	a, cleanup, err := setup(ctx, cliCtx, logger)
	if nil != err {
		return err
	}
	defer cleanup()

	syncer := newSyncer(ctx, a)
	defer syncer.close()

	if cliCtx.Bool(flagLikedSongs) {
		return syncer.syncLikedSongs(ctx)
	}

	force := cliCtx.Bool(flagForceRefresh) || a.cfg.ForceLikedArtistQuery
	return syncer.syncLikedArtists(ctx, force)
}

func runSearch(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	query := strings.TrimSpace(strings.Join(cliCtx.Args().Slice(), " "))
	if query == "" {
		return errors.New("empty search query")
	}

	a, cleanup, err := setup(ctx, cliCtx, logger)
	if nil != err {
		return err
	}
	defer cleanup()

	searchCtx, cancelSearch := ctxutil.WithDelayedTimeout(ctx, 30*time.Second)
	defer cancelSearch()

	results, err := a.catalog.Search(searchCtx, query)
	if nil != err {
		return err
	}

	for _, track := range results.Tracks {
		names := sliceutil.Map(track.Artists, func(a spotify.Artist) string { return a.Name })
		var marker string
		if track.Explicit {
			marker = " [E]"
		}
		fmt.Printf("track     %s  %s - %s%s\n", track.ID, strings.Join(names, ", "), track.Name, marker)
	}
	for _, album := range results.Albums {
		fmt.Printf("album     %s  %s (%s)\n", album.ID, album.Name, releaseYear(album.ReleaseDate))
	}
	for _, artist := range results.Artists {
		fmt.Printf("artist    %s  %s\n", artist.ID, artist.Name)
	}
	for _, playlist := range results.Playlists {
		fmt.Printf("playlist  %s  %s by %s (%d tracks)\n", playlist.ID, playlist.Name, playlist.OwnerName, playlist.TotalTracks)
	}
	return nil
}

func releaseYear(releaseDate string) string {
	if len(releaseDate) > 4 {
		return releaseDate[:4]
	}
	return releaseDate
}

func runPlaylists(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.NewPretty(os.Stdout).Level(zerolog.TraceLevel)
	a, cleanup, err := setup(ctx, cliCtx, logger)
	if nil != err {
		return err
	}
	defer cleanup()

	playlists, err := a.catalog.UserPlaylists(ctx)
	if nil != err {
		return err
	}
	for _, playlist := range playlists {
		fmt.Printf("%s  %s by %s (%d tracks)\n", playlist.ID, playlist.Name, playlist.OwnerName, playlist.TotalTracks)
	}
	return nil
}
