package api

import (
	"strconv"
	"strings"

	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/gin-gonic/gin"
)

// applicationID 解析路径参数 id, 失败时记录错误并返回 false
func applicationID(c *gin.Context) (uint, bool) {
	id, err := utils.ParseApplicationID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return 0, false
	}
	return id, true
}

// queryList 读取可重复或逗号分隔的查询参数
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// pageParams 读取分页参数, 与仓储层默认值保持一致
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// checkText 校验自由文本输入
func checkText(c *gin.Context, values ...string) bool {
	for _, v := range values {
		if err := utils.ValidateText(v, maxTextLength); err != nil {
			fail(c, err)
			return false
		}
	}
	return true
}

// maxTextLength 评审意见等文本的最大长度
const maxTextLength = 10000
