package server

import (
	"time"

	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/normalizer"
)

type errorView struct {
	Error string `json:"error"`
}

type expansionView struct {
	ID          string `json:"id"`
	Expanded    bool   `json:"expanded"`
	BranchError string `json:"branchError,omitempty"`
}

type treeView struct {
	Categories   []categoryView    `json:"categories"`
	BranchErrors map[string]string `json:"branchErrors,omitempty"`
	Stale        bool              `json:"stale"`
	LoadedAt     time.Time         `json:"loadedAt"`
}

type categoryView struct {
	domain.Category
	DescriptionText string            `json:"descriptionText"`
	Expanded        bool              `json:"expanded"`
	Subcategories   []subcategoryView `json:"subcategories"`
}

type subcategoryView struct {
	domain.Subcategory
	DescriptionText  string               `json:"descriptionText"`
	Expanded         bool                 `json:"expanded"`
	SubSubcategories []subSubcategoryView `json:"subSubcategories"`
}

type subSubcategoryView struct {
	domain.SubSubcategory
	DescriptionText string `json:"descriptionText"`
}

func (s *Server) treeView(snap *domain.Snapshot) treeView {
	view := treeView{
		Categories:   make([]categoryView, 0, len(snap.Categories)),
		BranchErrors: snap.BranchErrors,
		Stale:        snap.Stale,
		LoadedAt:     snap.LoadedAt,
	}

	for _, c := range snap.Categories {
		cv := categoryView{
			Category:        c,
			DescriptionText: normalizer.PlainText(c.Description),
			Expanded:        s.service.IsCategoryExpanded(c.ID),
			Subcategories:   make([]subcategoryView, 0, len(c.Subcategories)),
		}

		for _, sub := range c.Subcategories {
			leaves := snap.SubSubcategories(sub.ID)
			sv := subcategoryView{
				Subcategory:      sub,
				DescriptionText:  normalizer.PlainText(sub.Description),
				Expanded:         s.service.IsSubcategoryExpanded(sub.ID),
				SubSubcategories: make([]subSubcategoryView, 0, len(leaves)),
			}
			for _, leaf := range leaves {
				sv.SubSubcategories = append(sv.SubSubcategories, subSubcategoryView{
					SubSubcategory:  leaf,
					DescriptionText: normalizer.PlainText(leaf.Description),
				})
			}
			cv.Subcategories = append(cv.Subcategories, sv)
		}

		view.Categories = append(view.Categories, cv)
	}

	return view
}
