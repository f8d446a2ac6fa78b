package tokenizer

// embeddedUserDict is the built-in platform-term dictionary, used when no
// USERDICT_PATH is configured. Format matches gse user dictionaries: one
// "word weight" pair per line.
const embeddedUserDict = `自建应用 200
第三方应用 200
服务商 150
客户联系 200
客户群 150
会话存档 150
通讯录 200
企业微信 300
小程序 300
视频号 150
多维表格 200
消息卡片 200
卡片消息 150
群机器人 150
应用消息 150
模板消息 150
订阅消息 150
事件订阅 150
回调配置 120
接口调用 120
频率限制 120
错误码 200
access_token 300
tenant_access_token 300
app_access_token 300
user_access_token 300
corpid 200
corpsecret 200
suite_ticket 150
预授权码 120
开放平台 200
电商平台 150
聚石塔 120
奇门 100
物流详情 100
商品详情 120
订单详情 120
退款接口 100
直播能力 100
经营数据 100
`
