// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ncert-tutor-go/internal/config"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保教材段落索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewPassageIndex(client, esCfg.IndexName).EnsureIndex(context.Background(), dims)
}

// NewClient 创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// Hit 是一条检索结果。Score 为 Elasticsearch 原始得分。
type Hit struct {
	Doc   model.EsDocument
	Score float64
}

// PassageIndex 封装了教材段落索引上的读写操作。
type PassageIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewPassageIndex 创建 PassageIndex。
func NewPassageIndex(client *elasticsearch.Client, index string) *PassageIndex {
	return &PassageIndex{client: client, index: index}
}

// EnsureIndex 检查索引是否存在，如果不存在则按向量维度创建它。
func (p *PassageIndex) EnsureIndex(ctx context.Context, dims int) error {
	res, err := p.client.Indices.Exists([]string{p.index}, p.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", p.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 英文教材使用 standard 分词器；余弦相似度下 kNN 得分落在 [0,1]。
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"file_md5": { "type": "keyword" },
				"file_name": { "type": "keyword" },
				"chunk_id": { "type": "integer" },
				"text_content": { "type": "text", "analyzer": "standard" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"grade": { "type": "integer" },
				"grade_bucket": { "type": "keyword" },
				"subject": { "type": "keyword" },
				"chapter": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err = p.client.Indices.Create(
		p.index,
		p.client.Indices.Create.WithContext(ctx),
		p.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", p.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", p.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", p.index)
	return nil
}

// IndexDocument 将单个段落索引到 Elasticsearch。
func (p *PassageIndex) IndexDocument(ctx context.Context, doc model.EsDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      p.index,
		DocumentID: doc.VectorID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, p.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// DeleteByFile 删除某本教材的全部段落，重新入库前调用。
func (p *PassageIndex) DeleteByFile(ctx context.Context, fileMD5 string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"file_md5": fileMD5}},
	})
	res, err := p.client.DeleteByQuery(
		[]string{p.index},
		bytes.NewReader(body),
		p.client.DeleteByQuery.WithContext(ctx),
		p.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}

// KNN 按向量相似度检索，限定在某个年级段内。
func (p *PassageIndex) KNN(ctx context.Context, vector []float32, k int, gradeBucket string) ([]Hit, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 30,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"grade_bucket": gradeBucket},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    k,
	}
	return p.search(ctx, query)
}

// Match 是向量化不可用时的 BM25 兜底检索。
func (p *PassageIndex) Match(ctx context.Context, text string, k int, gradeBucket string) ([]Hit, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{"text_content": text},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"grade_bucket": gradeBucket},
				},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    k,
	}
	return p.search(ctx, query)
}

func (p *PassageIndex) search(ctx context.Context, query map[string]interface{}) ([]Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(p.index),
		p.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[PassageIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{Doc: h.Source, Score: h.Score})
	}
	return hits, nil
}
