// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ncert-tutor-go/internal/config"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor 是消费者处理教材入库任务所依赖的接口，
// 将 Kafka 消费逻辑与具体的处理管道解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TextbookIngestTask) error
	// MarkFailed 在任务重试次数耗尽后调用。
	MarkFailed(ctx context.Context, task tasks.TextbookIngestTask, cause error) error
}

// AttemptCounter 记录每个任务的失败次数，跨进程重启保留。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

func attemptsKey(fileMD5 string) string {
	return fmt.Sprintf("kafka:attempts:%s", fileMD5)
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 发送教材入库任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestTask 发送一个教材处理任务到 Kafka，以文件 MD5 作为消息 key。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.TextbookIngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileMD5),
		Value: taskBytes,
	})
}

// Close 刷新并关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 串行消费教材任务。失败的任务在原地按退避重试，
// 次数耗尽后提交 offset 并把教材标记为失败。
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	attempts    AttemptCounter
	maxAttempts int64
	backoff     time.Duration
}

// NewConsumer 创建消费者，调用 Run 开始消费。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, processor, attempts, cfg.MaxAttempts, 2*time.Second)
}

func newConsumer(r *kafka.Reader, p TaskProcessor, a AttemptCounter, maxAttempts int64, backoff time.Duration) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Consumer{reader: r, processor: p, attempts: a, maxAttempts: maxAttempts, backoff: backoff}
}

// Run 阻塞消费直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		log.Infof("收到 Kafka 消息: partition %d offset %d", m.Partition, m.Offset)

		if !c.handle(ctx, m.Value) {
			// 仅在关闭时出现，offset 未提交，重启后重新投递
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，返回是否可以提交 offset。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.TextbookIngestTask
	if err := json.Unmarshal(value, &task); err != nil || task.FileMD5 == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	key := attemptsKey(task.FileMD5)
	var local int64
	for {
		log.Infof("开始处理教材任务: MD5=%s, FileName=%s", task.FileMD5, task.FileName)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("教材任务处理成功: MD5=%s", task.FileMD5)
			if err := c.attempts.Reset(ctx, key); err != nil {
				log.Warnf("清理失败计数失败: %v", err)
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Errorf("处理教材任务失败: MD5=%s, Error: %v", task.FileMD5, err)

		local++
		n, incErr := c.attempts.Incr(ctx, key)
		if incErr != nil {
			// Redis 不可用时退回到本地计数
			log.Warnf("递增失败计数失败: %v", incErr)
			n = local
		}
		if n >= c.maxAttempts {
			log.Errorf("教材任务多次失败(>=%d)，提交 offset 终止重试: MD5=%s", c.maxAttempts, task.FileMD5)
			if mErr := c.processor.MarkFailed(ctx, task, err); mErr != nil {
				log.Errorf("标记教材失败状态失败: %v", mErr)
			}
			_ = c.attempts.Reset(ctx, key)
			return true
		}

		if !sleep(ctx, c.backoff*time.Duration(n)) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ErrNoBrokers 表示配置中没有可用的 broker 地址。
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Validate 检查 Kafka 配置是否可用。
func Validate(cfg config.KafkaConfig) error {
	if len(brokerList(cfg.Brokers)) == 0 {
		return ErrNoBrokers
	}
	if cfg.Topic == "" {
		return errors.New("kafka: topic is empty")
	}
	return nil
}
