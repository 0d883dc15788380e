package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/BenBurnett/gqlexec"
	log "github.com/jensneuse/abstractlogger"
	"go.uber.org/zap"
)

const HelloQuery = `
	query {
		hello
	}
`

const EchoMutation = `
	mutation($message: String!) {
		echo(message: $message)
	}
`

const SubscriptionQuery = `
	subscription {
		messageSent
	}
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer zapLogger.Sync() // nolint

	client := gqlexec.NewClient(gqlexec.WithLogger(log.NewZapLogger(zapLogger, log.InfoLevel)))
	printer := gqlexec.NewJSONSink(os.Stdout)

	// Query Hello
	err = client.Execute(ctx, &gqlexec.Request{
		Endpoint: "http://localhost:4000/graphql",
		Query:    HelloQuery,
	}, printer, gqlexec.NoReconnect())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	// Mutation Echo
	err = client.Execute(ctx, &gqlexec.Request{
		Endpoint:  "http://localhost:4000/graphql",
		Query:     EchoMutation,
		Variables: map[string]interface{}{"message": "Hello, mutation!"},
	}, gqlexec.SinkFunc(func(response *gqlexec.GraphQLResponse) error {
		if len(response.Errors) > 0 {
			return fmt.Errorf("GraphQL error: %v", response.Errors[0]["message"])
		}
		fmt.Println("Echo Response:", response.Data)
		return nil
	}), gqlexec.NoReconnect())
	if err != nil {
		fmt.Println("Error from echo mutation:", err)
		return
	}

	// Subscription, reconnecting every two seconds until interrupted
	err = client.Execute(ctx, &gqlexec.Request{
		Endpoint: "ws://localhost:4000/graphql",
		Query:    SubscriptionQuery,
	}, gqlexec.SinkFunc(func(response *gqlexec.GraphQLResponse) error {
		data, _ := response.Data.(map[string]interface{})
		fmt.Println("Subscription message received:", data["messageSent"])
		return nil
	}), gqlexec.ReconnectEvery(2*time.Second))
	if err != nil {
		fmt.Println("Subscription stopped:", err)
	}
}
