package handler

type JobParams struct {
	Job         string `param:"job"`
	DisplayName string `            form:"display_name" json:"display_name"`
}

type BuildParams struct {
	Job    string `param:"job"`
	Number int64  `param:"number"`
}

type ArtifactParams struct {
	Job    string `param:"job"`
	Number int64  `param:"number"`
	Dir    string `                query:"dir"`
}
