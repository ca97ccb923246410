package api

type Settings struct {
	SiteTitle       string `json:"siteTitle" binding:"required,max=100"`
	SiteDescription string `json:"siteDescription" binding:"max=500"`
	ContactEmail    string `json:"contactEmail" binding:"omitempty,email"`
	PrimaryColor    string `json:"primaryColor" binding:"omitempty,hexcolor"`
	PostsPerPage    int    `json:"postsPerPage" binding:"omitempty,min=1,max=50"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}
