package spatial

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// 外包框四周外扩（度）：rtreego 的相交判定不含边界接触，点状外包框也需要非零边长
const pad = 1e-9

type indexEntry struct {
	pos  int
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// 文档注释：地块候选索引（R-Tree）
// 背景：按外包框预筛候选地块，避免每个建筑线性扫描全部地块。
// 约束：Candidates 返回的下标按输入顺序升序，保证“首个命中者胜出”的语义与线性扫描一致；无法建索引的地块总是作为候选返回。
type Index struct {
	tree   *rtreego.Rtree
	always []int
	size   int
}

// NewIndex：为 parcels 建立索引，外包框由 matcher 决定
func NewIndex(m Matcher, parcels []orb.MultiPolygon) *Index {
	ix := &Index{tree: rtreego.NewTree(2, 25, 50), size: len(parcels)}
	for i, p := range parcels {
		b, ok := m.ParcelEnvelope(p)
		if !ok {
			ix.always = append(ix.always, i)
			continue
		}
		r, ok := toRect(b)
		if !ok {
			ix.always = append(ix.always, i)
			continue
		}
		ix.tree.Insert(&indexEntry{pos: i, rect: r})
	}
	return ix
}

// Len：索引覆盖的地块数量
func (ix *Index) Len() int { return ix.size }

// Candidates：返回与 b 外包框相交的地块下标（升序）
func (ix *Index) Candidates(b orb.Bound) []int {
	out := append([]int(nil), ix.always...)
	if r, ok := toRect(b); ok {
		for _, s := range ix.tree.SearchIntersect(r) {
			out = append(out, s.(*indexEntry).pos)
		}
	}
	sort.Ints(out)
	return out
}

// All：全部下标，用于无法计算外包框的建筑
func (ix *Index) All() []int {
	out := make([]int, ix.size)
	for i := range out {
		out[i] = i
	}
	return out
}

func toRect(b orb.Bound) (rtreego.Rect, bool) {
	w := b.Max.Lon() - b.Min.Lon()
	h := b.Max.Lat() - b.Min.Lat()
	if w < 0 || h < 0 || !finite(b.Min) || !finite(b.Max) {
		return rtreego.Rect{}, false
	}
	r, err := rtreego.NewRect(rtreego.Point{b.Min.Lon() - pad, b.Min.Lat() - pad}, []float64{w + 2*pad, h + 2*pad})
	if err != nil {
		return rtreego.Rect{}, false
	}
	return r, true
}
