package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/go-yomiage/internal/config"
	"github.com/shouni/go-yomiage/pkg/voicevox"
	"github.com/shouni/go-yomiage/pkg/yomiage/batch"
	"github.com/shouni/go-yomiage/pkg/yomiage/notify"
	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
	"github.com/shouni/go-yomiage/pkg/yomiage/synth"
)

var version = "dev"

type cliFlags struct {
	configPath       string
	envPath          string
	printDefaultPath bool
	showVersion      bool
	seed             uint64

	logLevel      string
	count         int
	genType       string
	speed         float64
	outputRoot    string
	minDigit      int
	maxDigit      int
	length        int
	subtractions  int
	allowNegative bool
	speakerID     int
	speakerName   string
	styleName     string
	apiURL        string
	stub          bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.configPath, "config", "", "設定ファイル (YAML) のパス")
	flag.StringVar(&f.envPath, "env", ".env", ".envファイルのパス")
	flag.BoolVar(&f.printDefaultPath, "print-default-path", false, "既定の出力先を表示して終了する")
	flag.BoolVar(&f.showVersion, "version", false, "バージョンを表示して終了する")
	flag.Uint64Var(&f.seed, "seed", 0, "問題生成の乱数シード (0 は現在時刻)")

	flag.StringVar(&f.logLevel, "log-level", "", "ログレベル (debug|info|warn|error)")
	flag.IntVar(&f.count, "count", 0, "生成する問題数")
	flag.StringVar(&f.genType, "gen-type", "", "問題種別の出し分け (addition|mix|alternating)")
	flag.Float64Var(&f.speed, "speed", 0, "問題文の話速")
	flag.StringVar(&f.outputRoot, "out", "", "出力先ディレクトリ")
	flag.IntVar(&f.minDigit, "min-digit", 0, "最小桁数")
	flag.IntVar(&f.maxDigit, "max-digit", 0, "最大桁数")
	flag.IntVar(&f.length, "length", 0, "口数")
	flag.IntVar(&f.subtractions, "subtractions", 0, "引き算の口数")
	flag.BoolVar(&f.allowNegative, "allow-negative", false, "途中経過が負になることを許可する")
	flag.IntVar(&f.speakerID, "speaker", 0, "VOICEVOX話者スタイルID")
	flag.StringVar(&f.speakerName, "speaker-name", "", "VOICEVOX話者名 (指定時は /speakers から解決)")
	flag.StringVar(&f.styleName, "style-name", "", "VOICEVOX話者スタイル名")
	flag.StringVar(&f.apiURL, "api-url", "", "VOICEVOXエンジンのURL")
	flag.BoolVar(&f.stub, "stub", false, "VOICEVOXエンジンを使わずスタブ音声で生成する")
	flag.Parse()
	return f
}

// apply は明示的に指定されたフラグだけを設定に反映します。
func (f *cliFlags) apply(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "count":
			cfg.Generation.Count = f.count
		case "gen-type":
			cfg.Generation.GenType = f.genType
		case "speed":
			cfg.Generation.SpeedScale = f.speed
		case "out":
			cfg.Generation.OutputRoot = f.outputRoot
		case "min-digit":
			cfg.Problem.MinDigit = f.minDigit
		case "max-digit":
			cfg.Problem.MaxDigit = f.maxDigit
		case "length":
			cfg.Problem.Length = f.length
		case "subtractions":
			cfg.Problem.Subtractions = f.subtractions
		case "allow-negative":
			cfg.Problem.AllowNegative = f.allowNegative
		case "speaker":
			cfg.Voicevox.SpeakerID = f.speakerID
		case "speaker-name":
			cfg.Voicevox.SpeakerName = f.speakerName
		case "style-name":
			cfg.Voicevox.StyleName = f.styleName
		case "api-url":
			cfg.Voicevox.APIURL = f.apiURL
		case "stub":
			cfg.Voicevox.Stub = f.stub
		}
	})
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Println(version)
		return 0
	}
	if flags.printDefaultPath {
		fmt.Println(config.DefaultOutputPath())
		return 0
	}

	if err := config.LoadDotEnv(flags.envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	flags.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// ログ設定
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := cfg.Request()
	if err != nil {
		slog.Error("生成要求の作成に失敗しました。", "error", err)
		return 1
	}

	// 1. 合成エンジンの初期化
	var engine synth.Engine
	speakerID := cfg.Voicevox.SpeakerID
	if cfg.Voicevox.Stub {
		engine = voicevox.NewStubEngine()
	} else {
		client, id, err := voicevox.Setup(ctx, cfg.VoicevoxSetup())
		if err != nil {
			slog.Error("VOICEVOXクライアントの初期化に失敗しました。", "error", err)
			slog.Error("VOICEVOXエンジンが起動しているか、またはAPI URLが正しいか確認してください。")
			return 1
		}
		engine, speakerID = client, id
	}

	// 2. 通知先の初期化
	sinks := notify.Multi{notify.NewLogSink(logger)}
	var bus *notify.Bus
	if cfg.Bus.Enabled {
		bus, err = notify.Connect(ctx, cfg.NotifyBus(), logger)
		if err != nil {
			slog.Error("NATSへの接続に失敗しました。", "error", err)
			return 1
		}
		defer bus.Close()
		sinks = append(sinks, bus.Sink())
	}

	// 3. バッチの準備
	gen := problem.NewGenerator()
	if flags.seed != 0 {
		gen = problem.NewSeededGenerator(flags.seed)
	}
	orch := batch.New(gen, synth.NewAdapter(engine, logger),
		batch.WithLogger(logger),
		batch.WithSink(sinks),
		batch.WithSpeakerID(speakerID),
	)
	token := batch.NewCancelToken()

	requestCancel := func() {
		if token.Cancelled() {
			return
		}
		token.Cancel()
		nctx := notify.WithBatchID(ctx, orch.CurrentBatchID())
		if err := sinks.Progress(nctx, batch.MsgCancelling); err != nil {
			slog.Warn("進捗通知の送信に失敗しました。", "error", err)
		}
	}

	if bus != nil {
		unsubscribe, err := bus.ListenCancel(notify.CancelHandler{
			Current: orch.CurrentBatchID,
			Cancel:  requestCancel,
			Logger:  logger,
		})
		if err != nil {
			slog.Error("キャンセル要求の購読に失敗しました。", "error", err)
			return 1
		}
		defer func() { _ = unsubscribe() }()
	}

	// 1回目のシグナルは現在の問題を書き終えてから停止し、2回目は即座に中断する
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		interrupted := false
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if !interrupted {
					interrupted = true
					slog.Warn("シグナルを受信しました。現在の問題を書き終えてから停止します。", "signal", sig.String())
					requestCancel()
					continue
				}
				slog.Warn("シグナルを再度受信しました。生成を中断します。", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	// 4. バッチの実行
	type outcome struct {
		res batch.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.Run(ctx, req, token)
		done <- outcome{res: res, err: err}
	}()
	out := <-done

	if out.err != nil {
		slog.Error("読み上げ算の生成に失敗しました。", "state", out.res.State.String(), "error", out.err)
		return 1
	}
	slog.Info(fmt.Sprintf("✅ 読み上げ算の生成が終了しました。出力先: %s", out.res.Dir),
		"state", out.res.State.String(),
		"files", len(out.res.Files))
	return 0
}
