package friends

type Friend struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
