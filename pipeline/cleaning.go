package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"factorlab/factor"
	"factorlab/market"
)

// CleaningRule 清洗规则：检查整张表，返回发现的问题；返回错误则终止运行
type CleaningRule interface {
	Apply(*market.Table) ([]QualityIssue, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type     string    `json:"type"`
	Severity string    `json:"severity"` // low, medium, high
	Message  string    `json:"message"`
	Date     time.Time `json:"date"`
	Symbol   string    `json:"symbol"`
}

// DataCleaner 数据清洗器。规则只检查和报告，从不修改数据。
type DataCleaner struct {
	priceRules  []CleaningRule
	returnRules []CleaningRule

	issues     []QualityIssue
	issuesLock sync.RWMutex

	log *zap.Logger
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(log *zap.Logger) *DataCleaner {
	if log == nil {
		log = zap.NewNop()
	}
	dc := &DataCleaner{log: log}

	// 添加默认规则
	dc.AddPriceRule(NewPriceValidationRule())
	dc.AddPriceRule(NewCoverageRule())
	dc.AddReturnRule(NewOutlierDetectionRule())
	return dc
}

// AddPriceRule registers a rule run on the month-end price table.
func (dc *DataCleaner) AddPriceRule(rule CleaningRule) {
	dc.priceRules = append(dc.priceRules, rule)
}

// AddReturnRule registers a rule run on the return table.
func (dc *DataCleaner) AddReturnRule(rule CleaningRule) {
	dc.returnRules = append(dc.returnRules, rule)
}

// CheckPrices runs the price rules.
func (dc *DataCleaner) CheckPrices(t *market.Table) error {
	return dc.apply(dc.priceRules, t)
}

// CheckReturns runs the return rules.
func (dc *DataCleaner) CheckReturns(t *market.Table) error {
	return dc.apply(dc.returnRules, t)
}

func (dc *DataCleaner) apply(rules []CleaningRule, t *market.Table) error {
	for _, rule := range rules {
		issues, err := rule.Apply(t)
		dc.record(issues)
		for _, issue := range issues {
			dc.log.Warn("data quality issue",
				zap.String("rule", rule.Name()),
				zap.String("symbol", issue.Symbol),
				zap.Time("date", issue.Date),
				zap.String("message", issue.Message))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (dc *DataCleaner) record(issues []QualityIssue) {
	if len(issues) == 0 {
		return
	}
	dc.issuesLock.Lock()
	defer dc.issuesLock.Unlock()
	dc.issues = append(dc.issues, issues...)
}

// GetIssues 获取问题列表
func (dc *DataCleaner) GetIssues() []QualityIssue {
	dc.issuesLock.RLock()
	defer dc.issuesLock.RUnlock()
	return append([]QualityIssue(nil), dc.issues...)
}

// ClearIssues 清空问题列表
func (dc *DataCleaner) ClearIssues() {
	dc.issuesLock.Lock()
	defer dc.issuesLock.Unlock()
	dc.issues = nil
}

// ============ 清洗规则实现 ============

// PriceValidationRule 价格验证规则
type PriceValidationRule struct {
	MinPrice float64
}

func NewPriceValidationRule() *PriceValidationRule {
	return &PriceValidationRule{MinPrice: 0}
}

func (r *PriceValidationRule) Name() string {
	return "price_validation"
}

// Apply rejects non-positive or infinite prices. Missing months are left to
// the return computation.
func (r *PriceValidationRule) Apply(t *market.Table) ([]QualityIssue, error) {
	for i, row := range t.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if math.IsInf(v, 0) || v <= r.MinPrice {
				return nil, fail(StageClean, ErrAcquisition,
					fmt.Errorf("price %v for %s on %s is not usable", v, t.Columns[j], t.Dates[i].Format("2006-01-02")))
			}
		}
	}
	return nil, nil
}

// CoverageRule 覆盖率规则：每个代码至少要有 MinObservations 个月末价格
type CoverageRule struct {
	MinObservations int
}

func NewCoverageRule() *CoverageRule {
	return &CoverageRule{MinObservations: 2}
}

func (r *CoverageRule) Name() string {
	return "coverage"
}

func (r *CoverageRule) Apply(t *market.Table) ([]QualityIssue, error) {
	var issues []QualityIssue
	for j, symbol := range t.Columns {
		n, missing := 0, 0
		var firstMissing time.Time
		for i, v := range t.Column(j) {
			if math.IsNaN(v) {
				if missing == 0 {
					firstMissing = t.Dates[i]
				}
				missing++
				continue
			}
			n++
		}
		if n < r.MinObservations {
			return issues, fail(StageClean, ErrAcquisition,
				fmt.Errorf("%s has %d month-end prices, need at least %d", symbol, n, r.MinObservations))
		}
		if missing > 0 {
			issues = append(issues, QualityIssue{
				Type:     r.Name(),
				Severity: "medium",
				Message:  fmt.Sprintf("%d months without a price; the last price is carried forward", missing),
				Date:     firstMissing,
				Symbol:   symbol,
			})
		}
	}
	return issues, nil
}

// ConstantReturnRule rejects a return column with no variation. The pipeline
// runs it as the precondition of standardization rather than as a cleaning rule.
type ConstantReturnRule struct {
	Epsilon float64
}

func NewConstantReturnRule() *ConstantReturnRule {
	return &ConstantReturnRule{Epsilon: 1e-12}
}

func (r *ConstantReturnRule) Name() string {
	return "constant_return"
}

func (r *ConstantReturnRule) Apply(t *market.Table) ([]QualityIssue, error) {
	if t.Rows() < 2 {
		return nil, &factor.DegenerateInputError{Column: "*", Reason: fmt.Sprintf("%d return observations", t.Rows())}
	}
	for j, symbol := range t.Columns {
		col := t.Column(j)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if hi-lo <= r.Epsilon {
			return nil, &factor.DegenerateInputError{Column: symbol, Reason: "returns are constant"}
		}
	}
	return nil, nil
}

// OutlierDetectionRule 异常值检测规则：只报告，不修正
type OutlierDetectionRule struct {
	StdDevThreshold float64
}

func NewOutlierDetectionRule() *OutlierDetectionRule {
	return &OutlierDetectionRule{
		StdDevThreshold: 5.0,
	}
}

func (r *OutlierDetectionRule) Name() string {
	return "outlier_detection"
}

func (r *OutlierDetectionRule) Apply(t *market.Table) ([]QualityIssue, error) {
	var issues []QualityIssue
	for j, symbol := range t.Columns {
		col := t.Column(j)
		mean, std := stat.MeanStdDev(col, nil)
		if !(std > 0) {
			continue
		}
		for i, v := range col {
			if z := math.Abs(v-mean) / std; z > r.StdDevThreshold {
				issues = append(issues, QualityIssue{
					Type:     r.Name(),
					Severity: "low",
					Message:  fmt.Sprintf("return %.4f is %.1f standard deviations from the mean", v, z),
					Date:     t.Dates[i],
					Symbol:   symbol,
				})
			}
		}
	}
	return issues, nil
}
