package models

import "time"

// CourseCategory groups courses into a tree.
type CourseCategory struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	ParentID    *string   `db:"parent_id" json:"parent_id,omitempty"`
	Position    int       `db:"position" json:"position"`
	Visible     bool      `db:"visible" json:"visible"`
	CourseCount int       `db:"course_count" json:"course_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryNode is a category with its resolved children.
type CategoryNode struct {
	CourseCategory
	Children []*CategoryNode `json:"children"`
}

// BuildCategoryTree arranges a flat, position-sorted category list into a tree.
func BuildCategoryTree(categories []CourseCategory) []*CategoryNode {
	nodes := make(map[string]*CategoryNode, len(categories))
	order := make([]*CategoryNode, 0, len(categories))
	for i := range categories {
		node := &CategoryNode{CourseCategory: categories[i], Children: []*CategoryNode{}}
		nodes[node.ID] = node
		order = append(order, node)
	}
	var roots []*CategoryNode
	for _, node := range order {
		if node.ParentID != nil {
			if parent, ok := nodes[*node.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
