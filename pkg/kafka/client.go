// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/pkg/database"
	"feedscope-go/pkg/log"
	"feedscope-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// IndexTaskProcessor defines the interface for any service that can process
// an index task. This decouples the Kafka consumer from the queue implementation.
type IndexTaskProcessor interface {
	Process(ctx context.Context, task tasks.ArticleIndexTask) error
}

// RefreshTaskProcessor 处理增量刷新任务。刷新是尽力而为的，
// 实现永远不应返回会触发重投的错误。
type RefreshTaskProcessor interface {
	Process(ctx context.Context, task tasks.RelatedRefreshTask) error
}

var (
	indexProducer   *kafka.Writer
	refreshProducer *kafka.Writer
)

// InitProducers 初始化索引与刷新两个主题的生产者。
func InitProducers(cfg config.KafkaConfig) {
	indexProducer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.IndexTopic,
		Balancer: &kafka.LeastBytes{},
	}
	refreshProducer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.RefreshTopic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceIndexTask 发送一个向量索引任务到 Kafka。
func ProduceIndexTask(task tasks.ArticleIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return indexProducer.WriteMessages(context.Background(), kafka.Message{Value: taskBytes})
}

// ProduceRefreshTask 发送一个增量刷新任务到 Kafka。刷新触发是显式
// 任务而不是散落各处的 fire-and-forget 调用，失败对观测可见。
func ProduceRefreshTask(task tasks.RelatedRefreshTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return refreshProducer.WriteMessages(context.Background(), kafka.Message{Value: taskBytes})
}

// StartIndexConsumer 启动索引主题的消费者。消息被逐条同步处理，
// 成功的索引任务随即派生一个增量刷新任务。
func StartIndexConsumer(cfg config.KafkaConfig, processor IndexTaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.IndexTopic,
		GroupID:  "feedscope-go-indexer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 索引消费者已启动，正在监听主题 '%s'", cfg.IndexTopic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取索引消息失败", err)
			break
		}

		var task tasks.ArticleIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析索引消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理索引任务: ArticleID=%d, UserID=%d, Op=%s", task.ArticleID, task.UserID, task.Op)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("索引任务失败: ArticleID=%d, Error: %v", task.ArticleID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:index:attempts:%d", task.ArticleID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("索引任务多次失败(>=3)，提交 offset 终止重试: ArticleID=%d", task.ArticleID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
			continue
		}

		log.Infof("索引任务处理成功: ArticleID=%d", task.ArticleID)
		_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:index:attempts:%d", task.ArticleID)).Err()

		// 索引成功的新文章会扰动既有文章的近邻关系, 派生增量刷新
		if task.Op == tasks.OpIndex {
			refreshTask := tasks.RelatedRefreshTask{ArticleID: task.ArticleID, UserID: task.UserID}
			if err := ProduceRefreshTask(refreshTask); err != nil {
				log.Warnf("派生增量刷新任务失败: ArticleID=%d, Error: %v", task.ArticleID, err)
			}
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 索引消费者失败: %v", err)
	}
}

// StartRefreshConsumer 启动刷新主题的消费者。刷新任务是缓存优化，
// 处理失败只记日志并提交 offset，从不重投。
func StartRefreshConsumer(cfg config.KafkaConfig, processor RefreshTaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.RefreshTopic,
		GroupID:  "feedscope-go-refresher",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	log.Infof("Kafka 刷新消费者已启动，正在监听主题 '%s'", cfg.RefreshTopic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取刷新消息失败", err)
			break
		}

		var task tasks.RelatedRefreshTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析刷新消息: %v, value: %s", err, string(m.Value))
		} else if err := processor.Process(context.Background(), task); err != nil {
			log.Warnf("增量刷新任务失败: ArticleID=%d, Error: %v", task.ArticleID, err)
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 刷新消费者失败: %v", err)
	}
}
