package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/accrual-engine/events"
	"github.com/warp/accrual-engine/logging"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume time-record change events from Kafka",
	Long: `Reads change events from the configured topic and recalculates accruals for each.

Balances are read and written through the remote balance API when
balance_api.base_url is set, otherwise through the local database. Run
several replicas with redis.enabled so changes for one person never
interleave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := buildEngine(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer engine.Close()

		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			ConsumerGroup: cfg.Kafka.GroupID,
		}, engine.recalculator, logging.For("consumer").WithField("topic", cfg.Kafka.Topic))
		consumer.Start(ctx)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logging.Log.Info("Stopping consumer...")
		return consumer.Stop()
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
	consumeCmd.Flags().StringSlice("brokers", nil, "Kafka brokers (overrides kafka.brokers)")
	consumeCmd.Flags().String("topic", "", "Kafka topic (overrides kafka.topic)")
	consumeCmd.Flags().String("group", "", "Consumer group id (overrides kafka.group_id)")

	v.BindPFlag("kafka.brokers", consumeCmd.Flags().Lookup("brokers"))
	v.BindPFlag("kafka.topic", consumeCmd.Flags().Lookup("topic"))
	v.BindPFlag("kafka.group_id", consumeCmd.Flags().Lookup("group"))
}
