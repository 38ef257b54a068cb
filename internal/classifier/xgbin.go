package classifier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Node is one node of a regression tree. Internal nodes route
// x[Feature] < Threshold to Yes, otherwise to No; a missing value follows
// Yes when DefaultYes is set.
type Node struct {
	Feature    int
	Threshold  float64
	Yes        int
	No         int
	DefaultYes bool
	Leaf       float64
	IsLeaf     bool
}

// Tree is a regression tree rooted at node 0.
type Tree struct {
	Nodes []Node
}

const (
	objectiveLogistic = "binary:logistic"
	boosterGBTree     = "gbtree"
)

// On-disk records of the XGBoost binary model format, little-endian.
type (
	learnerParam struct {
		BaseScore          float32
		NumFeature         uint32
		NumClass           int32
		ContainExtraAttrs  int32
		ContainEvalMetrics int32
		Reserved           [29]int32
	}

	gbtreeParam struct {
		NumTrees       int32
		NumRoots       int32
		NumFeature     int32
		Pad            int32
		NumPbuffer     int64
		NumOutputGroup int32
		SizeLeafVector int32
		Reserved       [32]int32
	}

	treeParam struct {
		NumRoots       int32
		NumNodes       int32
		NumDeleted     int32
		MaxDepth       int32
		NumFeature     int32
		SizeLeafVector int32
		Reserved       [31]int32
	}

	treeNode struct {
		Parent int32
		CLeft  int32
		CRight int32
		SIndex uint32
		Info   float32
	}

	nodeStat struct {
		LossChg      float32
		SumHess      float32
		BaseWeight   float32
		LeafChildCnt int32
	}
)

// EncodeModel writes trees as a binary:logistic XGBoost gbtree model with
// a zero base margin, readable by LoadModel. The offline tooling and the
// demo artifact set use it; trained models come from XGBoost itself.
func EncodeModel(nFeatures int, trees []Tree) ([]byte, error) {
	if nFeatures <= 0 {
		return nil, fmt.Errorf("model: n_features must be positive, got %d", nFeatures)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("model: no trees")
	}

	var buf bytes.Buffer
	put := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	putString := func(s string) {
		put(uint64(len(s)))
		buf.WriteString(s)
	}

	put(learnerParam{NumFeature: uint32(nFeatures)})
	putString(objectiveLogistic)
	putString(boosterGBTree)
	put(gbtreeParam{
		NumTrees:       int32(len(trees)),
		NumRoots:       1,
		NumFeature:     int32(nFeatures),
		NumOutputGroup: 1,
	})

	for ti, tree := range trees {
		nodes, depth, err := tree.encode(nFeatures)
		if err != nil {
			return nil, fmt.Errorf("model: tree %d: %w", ti, err)
		}
		put(treeParam{
			NumRoots:   1,
			NumNodes:   int32(len(nodes)),
			MaxDepth:   int32(depth),
			NumFeature: int32(nFeatures),
		})
		put(nodes)
		stats := make([]nodeStat, len(nodes))
		for i := range stats {
			stats[i].SumHess = 1
		}
		put(stats)
	}
	put(make([]int32, len(trees)))

	return buf.Bytes(), nil
}

// encode validates the tree and lays it out as XGBoost nodes. Children
// must come after their parent and every node but the root must have
// exactly one parent.
func (t *Tree) encode(nFeatures int) ([]treeNode, int, error) {
	if len(t.Nodes) == 0 {
		return nil, 0, fmt.Errorf("empty tree")
	}

	out := make([]treeNode, len(t.Nodes))
	depth := make([]int, len(t.Nodes))
	for i := range out {
		out[i].Parent = -1
	}

	maxDepth := 0
	for i, n := range t.Nodes {
		if i > 0 && out[i].Parent == -1 {
			return nil, 0, fmt.Errorf("node %d is unreachable", i)
		}
		if n.IsLeaf {
			out[i].CLeft, out[i].CRight = -1, -1
			out[i].Info = float32(n.Leaf)
			continue
		}

		if n.Feature < 0 || n.Feature >= nFeatures {
			return nil, 0, fmt.Errorf("node %d splits on feature %d outside [0,%d)", i, n.Feature, nFeatures)
		}
		if math.IsNaN(n.Threshold) {
			return nil, 0, fmt.Errorf("node %d has a NaN threshold", i)
		}
		for _, child := range []int{n.Yes, n.No} {
			if child <= i || child >= len(t.Nodes) {
				return nil, 0, fmt.Errorf("node %d has invalid child %d", i, child)
			}
			if out[child].Parent != -1 || n.Yes == n.No {
				return nil, 0, fmt.Errorf("node %d shares child %d", i, child)
			}
		}

		sindex := uint32(n.Feature)
		if n.DefaultYes {
			sindex |= 1 << 31
		}
		out[i].CLeft, out[i].CRight = int32(n.Yes), int32(n.No)
		out[i].SIndex = sindex
		out[i].Info = float32(n.Threshold)

		out[n.Yes].Parent = int32(uint32(i) | 1<<31)
		out[n.No].Parent = int32(i)
		depth[n.Yes], depth[n.No] = depth[i]+1, depth[i]+1
		maxDepth = max(maxDepth, depth[i]+1)
	}
	return out, maxDepth, nil
}
