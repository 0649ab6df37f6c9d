package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/LubyRuffy/gemini2o"
	"github.com/LubyRuffy/gemini2o/auth"
	"github.com/LubyRuffy/gemini2o/geminiweb"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
)

// eino/adk 的 ChatModelAgentConfig 要求 Name 必填。
const defaultAgentName = "gemini2o"

func main() {
	var (
		model      = flag.String("model", gemini2o.DefaultModelName, "model name (mapped onto the fixed gemini model set)")
		input      = flag.String("input", "你好，介绍一下你自己", "user input")
		baseURL    = flag.String("base-url", "", "gemini web base url (default: https://gemini.google.com)")
		authSource = flag.String("auth-source", "auto", "cookie source: env|file|auto")
	)
	flag.Parse()

	provider, err := auth.NewProvider(*authSource)
	if err != nil {
		log.Fatalf("invalid auth-source: %v", err)
	}

	holder, err := geminiweb.NewSessionHolder(geminiweb.SessionHolderConfig{
		BaseURL: *baseURL,
		Cookies: func(ctx context.Context) (string, string, error) {
			return provider.Auth(ctx)
		},
	})
	if err != nil {
		log.Fatalf("create session holder failed: %v", err)
	}

	client, err := holder.EnsureReady(context.Background())
	if err != nil {
		log.Fatalf("init gemini client failed: %v", err)
	}

	m, err := geminiweb.NewChatModel(geminiweb.ChatModelConfig{
		Generator: client,
		Model:     gemini2o.MapModelName(*model),
	})
	if err != nil {
		log.Fatalf("create model failed: %v", err)
	}

	agent, err := adk.NewChatModelAgent(context.Background(), &adk.ChatModelAgentConfig{
		Name:        defaultAgentName,
		Description: "chat agent backed by the gemini web interface",
		Model:       m,
	})
	if err != nil {
		log.Fatalf("create agent failed: %v", err)
	}

	runner := adk.NewRunner(context.Background(), adk.RunnerConfig{
		Agent:           agent,
		EnableStreaming: false,
	})

	iter := runner.Run(context.Background(), []adk.Message{schema.UserMessage(*input)})
	for {
		ev, ok := iter.Next()
		if !ok {
			break
		}
		if ev.Err != nil {
			log.Fatalf("run failed: %v", ev.Err)
		}
		if ev.Output == nil || ev.Output.MessageOutput == nil {
			continue
		}
		msg := ev.Output.MessageOutput.Message
		if msg == nil {
			continue
		}
		if msg.Content != "" {
			fmt.Print(msg.Content)
		}
	}
	fmt.Println()
}
